package common

import "testing"

func TestMortonRoundTrip(t *testing.T) {
	tests := []struct{ x, y, z uint32 }{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{3, 5, 7},
		{1023, 1023, 1023},
		{512, 17, 900},
	}
	for _, tt := range tests {
		code := MortonEncode3(tt.x, tt.y, tt.z)
		x, y, z := MortonDecode3(code)
		if x != tt.x || y != tt.y || z != tt.z {
			t.Errorf("MortonDecode3(MortonEncode3(%d, %d, %d)) = (%d, %d, %d)", tt.x, tt.y, tt.z, x, y, z)
		}
	}
}

func TestMortonBitOrder(t *testing.T) {
	if got := MortonEncode3(1, 0, 0); got != 1 {
		t.Errorf("MortonEncode3(1,0,0) = %d, want 1", got)
	}
	if got := MortonEncode3(0, 1, 0); got != 2 {
		t.Errorf("MortonEncode3(0,1,0) = %d, want 2", got)
	}
	if got := MortonEncode3(0, 0, 1); got != 4 {
		t.Errorf("MortonEncode3(0,0,1) = %d, want 4", got)
	}
}

func TestWorkgroupCount(t *testing.T) {
	tests := []struct {
		n, size, want uint32
	}{
		{0, 64, 0},
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{10, 0, 10},
	}
	for _, tt := range tests {
		if got := WorkgroupCount(tt.n, tt.size); got != tt.want {
			t.Errorf("WorkgroupCount(%d, %d) = %d, want %d", tt.n, tt.size, got, tt.want)
		}
	}
}

func TestFloorToInt(t *testing.T) {
	tests := []struct {
		in   float32
		want int32
	}{
		{0, 0},
		{0.9, 0},
		{-0.1, -1},
		{-1, -1},
		{3e10, 2147483647},
	}
	for _, tt := range tests {
		if got := FloorToInt(tt.in); got != tt.want {
			t.Errorf("FloorToInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBytesToU32(t *testing.T) {
	words := []uint32{1, 2, 0xdeadbeef}
	got := BytesToU32(SliceToBytes(words))
	if len(got) != len(words) {
		t.Fatalf("len(BytesToU32()) = %d, want %d", len(got), len(words))
	}
	for i := range words {
		if got[i] != words[i] {
			t.Errorf("BytesToU32()[%d] = %#x, want %#x", i, got[i], words[i])
		}
	}
	if BytesToU32([]byte{1, 2}) != nil {
		t.Error("BytesToU32(short) should be nil")
	}
}

func TestExtent2D(t *testing.T) {
	if !(Extent2D{0, 10}).IsZero() {
		t.Error("Extent2D{0,10}.IsZero() = false, want true")
	}
	if got := (Extent2D{0, 10}).Clamp1(); got != (Extent2D{1, 10}) {
		t.Errorf("Clamp1() = %v, want 1x10", got)
	}
	if got := (Extent2D{4, 3}).Pixels(); got != 12 {
		t.Errorf("Pixels() = %d, want 12", got)
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"first set", []string{"a", "b"}, "a"},
		{"skips zero", []string{"", "b"}, "b"},
		{"all zero", []string{"", ""}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Coalesce(tt.values...); got != tt.want {
				t.Errorf("Coalesce(%q) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}
