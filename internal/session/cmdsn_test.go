package session

import "testing"

func TestCmdSNDeliversInOrderDespiteOutOfOrderArrival(t *testing.T) {
	w := newCmdsnWindow(100, 16)

	d, _, _, err := w.Accept(102, false)
	if err != nil || len(d) != 0 {
		t.Fatalf("cmdsn 102 held: got %v err=%v", d, err)
	}
	d, _, _, err = w.Accept(101, false)
	if err != nil || len(d) != 0 {
		t.Fatalf("cmdsn 101 held: got %v err=%v", d, err)
	}
	d, exp, _, err := w.Accept(100, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(d) != 3 || d[0] != 100 || d[1] != 101 || d[2] != 102 {
		t.Fatalf("expected [100 101 102], got %v", d)
	}
	if exp != 103 {
		t.Fatalf("expected ExpCmdSN=103, got %d", exp)
	}
}

func TestCmdSNBeyondWindowIsProtocolError(t *testing.T) {
	w := newCmdsnWindow(0, 4)
	if _, _, _, err := w.Accept(10, false); err == nil {
		t.Fatal("expected protocol error for cmdsn beyond MaxCmdSN")
	}
}

func TestCmdSNReplayOfServicedIsRejected(t *testing.T) {
	w := newCmdsnWindow(0, 4)
	if _, _, _, err := w.Accept(0, false); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := w.Accept(0, false); err == nil {
		t.Fatal("expected error replaying an already-serviced cmdsn")
	}
}

func TestImmediateCommandBypassesWindow(t *testing.T) {
	w := newCmdsnWindow(5, 4)
	d, exp, _, err := w.Accept(999, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(d) != 1 || d[0] != 999 {
		t.Fatalf("expected immediate delivery of 999, got %v", d)
	}
	if exp != 5 {
		t.Fatal("immediate command must not advance ExpCmdSN")
	}
}
