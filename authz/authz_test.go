package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castkeep/ledgergate/authz"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/internal/testutil"
	"github.com/castkeep/ledgergate/record"
)

func TestEndorsementAccepted(t *testing.T) {
	digest := []byte("request digest bytes")
	signer := testutil.NewEd25519Signer(t, "alice")

	ctx, err := authz.NewContext(digest, []record.Endorsement{signer.Endorse(digest)})
	require.NoError(t, err)

	assert.True(t, ctx.Endorsed(signer.Identity))
	assert.Equal(t, 1, ctx.Count())
	assert.NoError(t, authz.RequireEndorsement(ctx, signer.Identity))
}

func TestDilithiumEndorsementAccepted(t *testing.T) {
	digest := []byte("request digest bytes")
	signer := testutil.NewDilithiumSigner(t, "alice")

	ctx, err := authz.NewContext(digest, []record.Endorsement{signer.Endorse(digest)})
	require.NoError(t, err)
	assert.True(t, ctx.Endorsed(signer.Identity))
}

func TestInvalidSignatureSilentlyExcluded(t *testing.T) {
	digest := []byte("request digest bytes")
	signer := testutil.NewEd25519Signer(t, "alice")

	// A signature over different bytes proves nothing; the identity is left
	// out of the set without failing context construction.
	ctx, err := authz.NewContext(digest, []record.Endorsement{signer.EndorseWrongDigest(digest)})
	require.NoError(t, err)

	assert.False(t, ctx.Endorsed(signer.Identity))
	err = authz.RequireEndorsement(ctx, signer.Identity)
	assert.True(t, fault.Is(err, fault.MissingEndorsement))
}

func TestWrongIdentityDoesNotAuthorize(t *testing.T) {
	digest := []byte("request digest bytes")
	alice := testutil.NewEd25519Signer(t, "alice")
	mallory := testutil.NewEd25519Signer(t, "mallory")

	ctx, err := authz.NewContext(digest, []record.Endorsement{mallory.Endorse(digest)})
	require.NoError(t, err)

	err = authz.RequireEndorsement(ctx, alice.Identity)
	assert.True(t, fault.Is(err, fault.MissingEndorsement))
}

func TestMalformedEndorsementFailsConstruction(t *testing.T) {
	digest := []byte("d")

	_, err := authz.NewContext(digest, []record.Endorsement{
		{Identity: record.Identity("nocolon"), Signature: []byte("sig")},
	})
	assert.ErrorContains(t, err, "endorsement[0]")

	_, err = authz.NewContext(digest, []record.Endorsement{
		{Identity: record.Identity("rsa:00"), Signature: []byte("sig")},
	})
	assert.ErrorContains(t, err, "unsupported algorithm")

	_, err = authz.NewContext(digest, []record.Endorsement{
		{Identity: record.Identity("ed25519:0000"), Signature: []byte("sig")},
	})
	assert.ErrorContains(t, err, "invalid ed25519 public key length")

	alice := testutil.NewEd25519Signer(t, "alice")
	_, err = authz.NewContext(digest, []record.Endorsement{
		{Identity: alice.Identity, Signature: []byte("too short")},
	})
	assert.ErrorContains(t, err, "invalid ed25519 signature length")
}

func TestRequireController(t *testing.T) {
	rec := &record.ResourceRecord{Controller: record.ComponentID("component.vault")}

	assert.NoError(t, authz.RequireController(rec, "component.vault"))

	err := authz.RequireController(rec, "component.wallet")
	assert.True(t, fault.Is(err, fault.InvalidController))
}
