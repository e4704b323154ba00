// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindHeaderMalformed, "short ipv4 header")
	if err.Error() != "short ipv4 header" {
		t.Errorf("expected 'short ipv4 header', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindMapLookupMiss, "no v6 mapping")
	if wrapped.Error() != "no v6 mapping: short ipv4 header" {
		t.Errorf("expected 'no v6 mapping: short ipv4 header', got '%s'", wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindAddressReserved, "private under wkpf")
	if GetKind(err) != KindAddressReserved {
		t.Errorf("expected KindAddressReserved, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindMapLookupMiss, "dropped")
	if GetKind(wrapped) != KindMapLookupMiss {
		t.Errorf("expected KindMapLookupMiss, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindHeaderMalformed, "bad header")
	err = Attr(err, "src", "2001:db8::1")
	err = Attr(err, "proto", 17)

	attrs := GetAttributes(err)
	if attrs["src"] != "2001:db8::1" {
		t.Errorf("expected src, got %v", attrs["src"])
	}
	if attrs["proto"] != 17 {
		t.Errorf("expected 17, got %v", attrs["proto"])
	}

	wrapped := Wrap(err, KindMapLookupMiss, "dropped")
	wrapped = Attr(wrapped, "reason", "no match")

	allAttrs := GetAttributes(wrapped)
	if allAttrs["src"] != "2001:db8::1" || allAttrs["reason"] != "no match" {
		t.Errorf("missing attributes: %v", allAttrs)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindConfigInvalid:   "config_invalid",
		KindMapLookupMiss:   "map_lookup_miss",
		KindAddressReserved: "address_reserved",
		KindMTUExceeded:     "mtu_exceeded",
		KindChecksumInvalid: "checksum_invalid",
		KindHeaderMalformed: "header_malformed",
		KindPoolExhausted:   "pool_exhausted",
		KindOSResourceError: "os_resource_error",
		KindUnknown:         "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
