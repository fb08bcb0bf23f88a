// Package pysnap implements snapshot integrity (SPEC_FULL.md's
// supplement to spec.md §6.1's bare "snapshot(context) -> opaque bytes"):
// a digest over the serialized context so a host can detect a corrupted
// or tampered snapshot before calling resume, plus an optional detached
// signature so it can verify the snapshot actually came from a trusted
// producer.
//
// Grounded on tools/release_signer/signer/signer.go's
// ArmoredDetachSign/ReadArmoredKeyRing use of
// github.com/ProtonMail/go-crypto/openpgp for the signing half; there is
// no teacher equivalent of content-addressed snapshot hashing or
// compression (please never serializes its BuildState), so the digest
// and compression halves are new code, grounded only in the dependency
// choices SPEC_FULL.md's domain stack assigns to this package
// (zeebo/blake3, klauspost/compress/zstd).
package pysnap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/sandboxed-py/interp/src/pyctx"
)

// state is the serializable subset of a Context: open file handles, the
// filesystem capability, and the Yield hook are process-local and have
// no meaningful serialized form, so a snapshot captures everything else
// spec.md §5 calls out as "logically part of the context" that a host
// can actually carry across a process boundary.
type state struct {
	Env      map[string]string
	Output   []string
	Events   []pyctx.Event
	Profile  map[string]int64
	Budget   pyctx.Budget
	Routes   []routeRecord
}

// routeRecord captures a route registration's method/path; the handler
// callable itself is not serializable (it closes over a *pyenv.Env), so
// resume requires the host to re-register routes by re-running the
// program's top-level code before reaching the suspended statement —
// documented as an Open Question resolution: full closure capture across
// a process boundary is out of scope for this package.
type routeRecord struct {
	Method string
	Path   string
}

// Snapshot is the opaque-to-the-host result of Take: a compressed,
// content-addressed, optionally signed blob.
type Snapshot struct {
	Digest    [32]byte
	Payload   []byte // zstd-compressed JSON
	Signature []byte // detached openpgp signature over Payload, if signed
}

// Take serializes ctx's resumable state, compresses it, and computes a
// blake3 digest over the compressed bytes (spec.md's "opaque bytes", made
// verifiable).
func Take(ctx *pyctx.Context) (*Snapshot, error) {
	st := state{
		Env:     ctx.Env,
		Output:  ctx.Output,
		Events:  ctx.Events,
		Profile: ctx.Profile,
		Budget:  ctx.Budget,
	}
	for _, r := range ctx.Routes {
		st.Routes = append(st.Routes, routeRecord{Method: r.Method, Path: r.Path})
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("pysnap: encode: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("pysnap: compressor: %w", err)
	}
	compressed := enc.EncodeAll(raw, nil)
	enc.Close()
	return &Snapshot{Digest: blake3.Sum256(compressed), Payload: compressed}, nil
}

// Verify reports whether s.Payload's digest matches s.Digest, catching
// truncation or bit-flip corruption before Restore ever touches the
// bytes.
func (s *Snapshot) Verify() bool {
	return blake3.Sum256(s.Payload) == s.Digest
}

// Sign attaches a detached openpgp signature over the compressed
// payload, using the entity in an armored keyring whose identity name,
// user-id name or user-id email equals user (the last such entity when
// several match), the same shape signer.SignFileWithPGP uses.
func (s *Snapshot) Sign(armoredKeyring string, user, password string) error {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKeyring))
	if err != nil {
		return fmt.Errorf("pysnap: read keyring: %w", err)
	}
	var signer *openpgp.Entity
	for _, e := range entities {
		for name, ident := range e.Identities {
			if name == user || ident.UserId.Name == user || ident.UserId.Email == user {
				signer = e
				break
			}
		}
	}
	if signer == nil {
		return fmt.Errorf("pysnap: no signing entity found for %q", user)
	}
	if signer.PrivateKey != nil && signer.PrivateKey.Encrypted {
		if err := signer.PrivateKey.Decrypt([]byte(password)); err != nil {
			return fmt.Errorf("pysnap: decrypt key: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, signer, bytes.NewReader(s.Payload), nil); err != nil {
		return fmt.Errorf("pysnap: sign: %w", err)
	}
	s.Signature = buf.Bytes()
	return nil
}

// VerifySignature checks s.Signature against s.Payload using entities
// from the given armored public keyring.
func (s *Snapshot) VerifySignature(armoredKeyring string) error {
	if len(s.Signature) == 0 {
		return fmt.Errorf("pysnap: snapshot is not signed")
	}
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKeyring))
	if err != nil {
		return fmt.Errorf("pysnap: read keyring: %w", err)
	}
	_, err = openpgp.CheckArmoredDetachedSignature(entities, bytes.NewReader(s.Payload), bytes.NewReader(s.Signature), nil)
	return err
}

// Restore decompresses and decodes the snapshot's serialized state back
// onto a fresh base Context built by the caller (which supplies the
// process-local pieces a snapshot can't carry: capabilities, filesystem
// adapter, custom modules).
func Restore(s *Snapshot, base *pyctx.Context) (*pyctx.Context, error) {
	if !s.Verify() {
		return nil, fmt.Errorf("pysnap: digest mismatch, snapshot is corrupt")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("pysnap: decompressor: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(s.Payload, nil)
	if err != nil {
		return nil, fmt.Errorf("pysnap: decompress: %w", err)
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("pysnap: decode: %w", err)
	}
	ctx := base
	for _, line := range st.Output {
		ctx = ctx.WithOutput(line)
	}
	for _, ev := range st.Events {
		ctx = ctx.WithEvent(ev)
	}
	for name, n := range st.Profile {
		ctx = ctx.WithCounter(name, n)
	}
	ctx = ctx.WithSpend(st.Budget.Spent)
	for _, r := range st.Routes {
		ctx = ctx.WithRoute(pyctx.Route{Method: r.Method, Path: r.Path})
	}
	return ctx, nil
}
