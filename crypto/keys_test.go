package crypto

import (
	"encoding/json"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != KleoPrefix {
		t.Fatalf("unexpected prefix: %s", addr.Prefix())
	}

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestAddressJSONRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	raw[0] = 0x42
	addr := NewAddress(KleoPrefix, raw)

	encoded, err := json.Marshal(addr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}

	var zero Address
	encoded, err = json.Marshal(zero)
	if err != nil {
		t.Fatalf("marshal zero: %v", err)
	}
	if string(encoded) != `""` {
		t.Fatalf("zero address encoded as %s", encoded)
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal zero: %v", err)
	}
	if !decoded.IsZero() {
		t.Fatalf("decoded zero address is not zero")
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	pool := ModuleAddress("pool")
	if pool.Prefix() != ModulePrefix {
		t.Fatalf("prefix = %s, want %s", pool.Prefix(), ModulePrefix)
	}
	if !pool.Equal(ModuleAddress("pool")) {
		t.Fatal("derivation is not deterministic")
	}
	if pool.Equal(ModuleAddress("vouch")) {
		t.Fatal("distinct module names derived the same address")
	}
}

func TestAddressIsZero(t *testing.T) {
	var empty Address
	if !empty.IsZero() {
		t.Fatalf("empty address should be zero")
	}
	raw := make([]byte, 20)
	if !NewAddress(KleoPrefix, raw).IsZero() {
		t.Fatalf("all-zero bytes should be zero")
	}
	raw[19] = 1
	if NewAddress(KleoPrefix, raw).IsZero() {
		t.Fatalf("non-zero bytes reported zero")
	}
}
