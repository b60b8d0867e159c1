package passphrase

import "testing"

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("QUEST_TEST_PASS", "hunter2")
	src := NewSource("QUEST_TEST_PASS", "test keystore")
	value, err := src.Get()
	if err != nil || value != "hunter2" {
		t.Fatalf("unexpected passphrase %q (%v)", value, err)
	}
	t.Setenv("QUEST_TEST_PASS", "changed")
	if again, _ := src.Get(); again != "hunter2" {
		t.Fatalf("passphrase not cached: %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("QUEST_TEST_PASS", "   ")
	if _, err := NewSource("QUEST_TEST_PASS", "test keystore").Get(); err == nil {
		t.Fatalf("expected blank passphrase to be rejected")
	}
}
