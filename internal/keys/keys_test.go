package keys

import "testing"

func TestGetMasterKeyUnknownFallsBackToSmallest(t *testing.T) {
	set := MasterKeySet{5: []byte("five"), 1: []byte("one"), 9: []byte("nine")}
	missing := 42
	id, secret := set.GetMasterKey(&missing)
	if id != 1 || string(secret) != "one" {
		t.Fatalf("got id=%d secret=%q, want id=1 secret=one", id, secret)
	}
}

func TestGetMasterKeyKnown(t *testing.T) {
	set := MasterKeySet{1: []byte("one"), 2: []byte("two")}
	want := 2
	id, secret := set.GetMasterKey(&want)
	if id != 2 || string(secret) != "two" {
		t.Fatalf("got id=%d secret=%q, want id=2 secret=two", id, secret)
	}
}

func TestDeriveStepKeyDeterministic(t *testing.T) {
	a, err := DeriveStepKey([]byte(DevMasterKey), 3, "20260225", 1)
	if err != nil {
		t.Fatalf("DeriveStepKey: %v", err)
	}
	b, err := DeriveStepKey([]byte(DevMasterKey), 3, "20260225", 1)
	if err != nil {
		t.Fatalf("DeriveStepKey: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(a))
	}
	if string(a) != string(b) {
		t.Fatalf("DeriveStepKey is not deterministic for identical inputs")
	}

	c, err := DeriveStepKey([]byte(DevMasterKey), 3, "20260226", 1)
	if err != nil {
		t.Fatalf("DeriveStepKey: %v", err)
	}
	if string(a) == string(c) {
		t.Fatalf("DeriveStepKey should differ across dates")
	}
}

func TestDeriveContextSeedDeterministic(t *testing.T) {
	key, err := DeriveStepKey([]byte(DevMasterKey), 3, "20260225", 1)
	if err != nil {
		t.Fatalf("DeriveStepKey: %v", err)
	}
	s1 := DeriveContextSeed(key, []int{11, 12})
	s2 := DeriveContextSeed(key, []int{11, 12})
	if s1 != s2 {
		t.Fatalf("context seed not deterministic")
	}
	s3 := DeriveContextSeed(key, []int{12, 11})
	if s1 == s3 {
		t.Fatalf("context seed should depend on token order")
	}
}
