package utils

import "testing"

func TestNormalizeAddress(t *testing.T) {
	got := NormalizeAddress("  0xABCdef1234567890abcdef1234567890ABCDEF12 ")
	want := "0xabcdef1234567890abcdef1234567890abcdef12"
	if got != want {
		t.Errorf("NormalizeAddress = %q, want %q", got, want)
	}
}

func TestShortAddress(t *testing.T) {
	addr := "0xabcdef1234567890abcdef1234567890abcdef12"
	if got := ShortAddress(addr); got != "0xabcd...ef12" {
		t.Errorf("ShortAddress = %q", got)
	}
	if got := ShortAddress("0xshort"); got != "0xshort" {
		t.Errorf("short input should pass through, got %q", got)
	}
}

func TestMinMaxFloat(t *testing.T) {
	if MinFloat(1.5, 2.5) != 1.5 {
		t.Error("MinFloat failed")
	}
	if MaxFloat(1.5, 2.5) != 2.5 {
		t.Error("MaxFloat failed")
	}
}
