package capture

import "testing"

func Test_Htons(t *testing.T) {
	if got := htons(0x0800); got != 0x0008 {
		t.Fatalf("htons(0x0800) = 0x%04x, want 0x0008", got)
	}
}
