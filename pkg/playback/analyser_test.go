package playback

import "testing"

func TestAnalyser_KeepsNewest(t *testing.T) {
	a := NewAnalyser(4)
	a.Write([]float32{0.1, 0.2, 0.3})
	a.Write([]float32{0.4, 0.5})

	dst := make([]float32, 4)
	if n := a.FloatTimeDomainData(dst); n != 4 {
		t.Fatalf("expected 4 samples, got %d", n)
	}
	want := []float32{0.2, 0.3, 0.4, 0.5}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], dst[i])
		}
	}
}

func TestAnalyser_ByteTimeDomain(t *testing.T) {
	a := NewAnalyser(3)
	a.Write([]float32{0, 1, -1})

	dst := make([]byte, 3)
	a.ByteTimeDomainData(dst)
	want := []byte{128, 255, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("byte %d: expected %d, got %d", i, want[i], dst[i])
		}
	}
}

func TestAnalyser_SilentLevel(t *testing.T) {
	if lvl := NewAnalyser(0).Level(); lvl != 0 {
		t.Errorf("expected 0 level for empty tap, got %v", lvl)
	}
	if NewAnalyser(0).Size() != DefaultAnalyserSize {
		t.Errorf("expected default size")
	}
}
