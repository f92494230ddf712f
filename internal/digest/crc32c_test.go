package digest

import "testing"

func TestChecksumKnownVector(t *testing.T) {
	// "123456789" has a well-known CRC32C (Castagnoli) checksum.
	const want = 0xE3069283
	if got := Checksum([]byte("123456789")); got != want {
		t.Fatalf("Checksum() = %#x, want %#x", got, want)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	data := []byte("the quick brown fox")
	sum := Checksum(data)
	if !Verify(data, sum) {
		t.Fatal("Verify() = false for matching digest")
	}
	corrupt := append([]byte(nil), data...)
	corrupt[0] ^= 0xFF
	if Verify(corrupt, sum) {
		t.Fatal("Verify() = true for corrupted data")
	}
}

func TestWriterIncrementalMatchesOneShot(t *testing.T) {
	data := []byte("header-bytes-then-more-header-bytes")
	w := NewWriter()
	_, _ = w.Write(data[:10])
	_, _ = w.Write(data[10:])
	if w.Sum32() != Checksum(data) {
		t.Fatalf("incremental digest %#x != one-shot %#x", w.Sum32(), Checksum(data))
	}
}
