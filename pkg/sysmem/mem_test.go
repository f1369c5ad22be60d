package sysmem

import (
	"runtime"
	"testing"
)

func TestTotal(t *testing.T) {
	result := Total()
	if result.TotalBytes == 0 {
		t.Fatal("Total() returned 0 bytes")
	}

	switch runtime.GOOS {
	case "linux", "darwin":
		if !result.Reliable {
			t.Logf("memory detection not reliable on %s", runtime.GOOS)
		}
	default:
		if result.Reliable {
			t.Errorf("expected Reliable=false on %s", runtime.GOOS)
		}
		if result.TotalBytes != DefaultMemoryBytes {
			t.Errorf("expected fallback %d, got %d", DefaultMemoryBytes, result.TotalBytes)
		}
	}
}

func TestTotalBytesMatchesTotal(t *testing.T) {
	if got, want := TotalBytes(), Total().TotalBytes; got != want {
		t.Errorf("TotalBytes() = %d, Total().TotalBytes = %d", got, want)
	}
}

func TestBudget(t *testing.T) {
	total := TotalBytes()

	if got := Budget(0); got != 0 {
		t.Errorf("Budget(0) = %d, want 0", got)
	}
	if got := Budget(-1); got != 0 {
		t.Errorf("Budget(-1) = %d, want 0", got)
	}
	if got := Budget(2); got != total {
		t.Errorf("Budget(2) = %d, want clamp to %d", got, total)
	}
	half := Budget(0.5)
	if half == 0 || half > total {
		t.Errorf("Budget(0.5) = %d, total %d", half, total)
	}
}
