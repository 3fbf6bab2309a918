package settle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subchannel-org/subchannel-go-base/catalog"
	"github.com/subchannel-org/subchannel-go-base/channel"
	"github.com/subchannel-org/subchannel-go-base/crypto"
	"github.com/subchannel-org/subchannel-go-base/ledger"
	"github.com/subchannel-org/subchannel-go-base/testutils"
	"github.com/subchannel-org/subchannel-go-base/types"
)

const hour = 3600

type fixture struct {
	settlement *Settlement
	channels   *channel.Store
	ledger     *ledger.Ledger
	signer     *crypto.InMemorySecp256K1Signer
	owner      types.Identity
}

// newFixture sets up one entry (id 0, price 300, one hour), a channel
// store, a ledger and the settlement protocol with the default verifier.
func newFixture(t *testing.T) *fixture {
	admin := testutils.NewIdentity(t)
	cat, err := catalog.New(admin)
	require.NoError(t, err)
	_, err = cat.RegisterEntry(admin, "entry", 300, hour)
	require.NoError(t, err)

	channels := channel.NewStore()
	l := ledger.New(cat, channels)
	signer, owner := testutils.NewSigner(t)
	return &fixture{
		settlement: New(channels, l, nil),
		channels:   channels,
		ledger:     l,
		signer:     signer,
		owner:      owner,
	}
}

// attestation builds a signed close attestation for the fixture owner.
func (f *fixture) attestation(t *testing.T, finalBalance uint64, activeIDs []uint64, nonce uint64) *CloseAttestation {
	t.Helper()
	att := &CloseAttestation{
		Owner:          f.owner,
		FinalBalance:   finalBalance,
		ActiveEntryIDs: activeIDs,
		Nonce:          nonce,
	}
	require.NoError(t, att.Sign(f.signer))
	return att
}

func Test_CloseCooperative(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 1000)
		require.NoError(t, err)
		_, err = f.ledger.ActivateOne(f.owner, 0, 100)
		require.NoError(t, err)

		payout, err := f.settlement.CloseCooperative(f.attestation(t, 700, []uint64{0}, 1), 100)
		require.NoError(t, err)
		require.EqualValues(t, 700, payout)
		require.EqualValues(t, 1, f.settlement.LastNonce(f.owner))

		ch, err := f.channels.Get(f.owner)
		require.NoError(t, err)
		require.False(t, ch.IsOpen)
		require.Zero(t, ch.Balance)
	})

	t.Run("resubmitting an accepted attestation fails with stale nonce", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 500)
		require.NoError(t, err)
		att := f.attestation(t, 500, nil, 1)

		_, err = f.settlement.CloseCooperative(att, 100)
		require.NoError(t, err)
		_, err = f.settlement.CloseCooperative(att, 100)
		require.ErrorIs(t, err, ErrStaleNonce)
	})

	t.Run("nonce must be strictly greater than the high-water mark", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 500)
		require.NoError(t, err)
		_, err = f.settlement.CloseCooperative(f.attestation(t, 500, nil, 5), 100)
		require.NoError(t, err)

		// new lifecycle, replaying any nonce <= 5 must fail even though
		// signature and balance check out
		require.NoError(t, f.channels.Remove(f.owner))
		_, err = f.channels.Deposit(f.owner, 200)
		require.NoError(t, err)
		_, err = f.settlement.CloseCooperative(f.attestation(t, 200, nil, 5), 100)
		require.ErrorIs(t, err, ErrStaleNonce)

		payout, err := f.settlement.CloseCooperative(f.attestation(t, 200, nil, 6), 100)
		require.NoError(t, err)
		require.EqualValues(t, 200, payout)
	})

	t.Run("unsigned attestation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 500)
		require.NoError(t, err)
		att := &CloseAttestation{Owner: f.owner, FinalBalance: 500, Nonce: 1}
		_, err = f.settlement.CloseCooperative(att, 100)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("signed by a different key", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 500)
		require.NoError(t, err)

		att := &CloseAttestation{Owner: f.owner, FinalBalance: 500, Nonce: 1}
		stranger, _ := testutils.NewSigner(t)
		require.NoError(t, att.Sign(stranger))

		_, err = f.settlement.CloseCooperative(att, 100)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("field tampered after signing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 500)
		require.NoError(t, err)

		att := f.attestation(t, 400, nil, 1)
		att.FinalBalance = 500 // would match the channel, but breaks the signature
		_, err = f.settlement.CloseCooperative(att, 100)
		require.ErrorIs(t, err, ErrBadSignature)

		// nothing was applied
		balance, err := f.channels.Balance(f.owner)
		require.NoError(t, err)
		require.EqualValues(t, 500, balance)
		require.Zero(t, f.settlement.LastNonce(f.owner))
	})

	t.Run("attested balance does not match the channel", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 500)
		require.NoError(t, err)

		_, err = f.settlement.CloseCooperative(f.attestation(t, 400, nil, 1), 100)
		require.ErrorIs(t, err, ErrBalanceMismatch)

		// a failed close must not consume the nonce
		require.Zero(t, f.settlement.LastNonce(f.owner))
		payout, err := f.settlement.CloseCooperative(f.attestation(t, 500, nil, 1), 100)
		require.NoError(t, err)
		require.EqualValues(t, 500, payout)
	})

	t.Run("attested set must not lag the ledger", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 1000)
		require.NoError(t, err)
		_, err = f.ledger.ActivateOne(f.owner, 0, 100)
		require.NoError(t, err)

		_, err = f.settlement.CloseCooperative(f.attestation(t, 700, nil, 1), 100)
		require.ErrorIs(t, err, ErrBalanceMismatch)
	})

	t.Run("attested set may carry entries the ledger expired", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.channels.Deposit(f.owner, 1000)
		require.NoError(t, err)
		_, err = f.ledger.ActivateOne(f.owner, 0, 100)
		require.NoError(t, err)

		payout, err := f.settlement.CloseCooperative(f.attestation(t, 700, []uint64{0}, 1), 100+hour)
		require.NoError(t, err)
		require.EqualValues(t, 700, payout)
	})

	t.Run("no open channel", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.settlement.CloseCooperative(f.attestation(t, 0, nil, 1), 100)
		require.ErrorIs(t, err, channel.ErrChannelNotOpen)
	})
}

func Test_CloseAttestation(t *testing.T) {
	t.Run("sig bytes exclude the signature", func(t *testing.T) {
		signer, owner := testutils.NewSigner(t)
		att := &CloseAttestation{Owner: owner, FinalBalance: 100, ActiveEntryIDs: []uint64{1, 2}, Nonce: 1}
		unsigned, err := att.SigBytes()
		require.NoError(t, err)
		require.NoError(t, att.Sign(signer))
		signed, err := att.SigBytes()
		require.NoError(t, err)
		require.Equal(t, unsigned, signed)
	})

	t.Run("sig bytes are canonical wrt entry id order", func(t *testing.T) {
		signer, owner := testutils.NewSigner(t)
		a := &CloseAttestation{Owner: owner, FinalBalance: 100, ActiveEntryIDs: []uint64{2, 1}, Nonce: 1}
		b := &CloseAttestation{Owner: owner, FinalBalance: 100, ActiveEntryIDs: []uint64{1, 2}, Nonce: 1}
		ab, err := a.SigBytes()
		require.NoError(t, err)
		bb, err := b.SigBytes()
		require.NoError(t, err)
		require.Equal(t, ab, bb)

		require.NoError(t, a.Sign(signer))
		sb, err := b.SigBytes()
		require.NoError(t, err)
		require.NoError(t, VerifyOwnerProof(owner, sb, a.Signature))
	})

	t.Run("cbor round trip", func(t *testing.T) {
		signer, owner := testutils.NewSigner(t)
		att := &CloseAttestation{Owner: owner, FinalBalance: 100, ActiveEntryIDs: []uint64{0}, Nonce: 7}
		require.NoError(t, att.Sign(signer))

		data, err := att.MarshalCBOR()
		require.NoError(t, err)
		decoded := &CloseAttestation{}
		require.NoError(t, decoded.UnmarshalCBOR(data))
		require.Equal(t, att, decoded)
	})

	t.Run("invalid attestations", func(t *testing.T) {
		var att *CloseAttestation
		require.EqualError(t, att.IsValid(), "attestation is nil")

		att = &CloseAttestation{Owner: []byte{1}}
		require.ErrorContains(t, att.IsValid(), "invalid owner")

		att = &CloseAttestation{Owner: make(types.Identity, types.IdentityLength)}
		require.EqualError(t, att.IsValid(), "attestation is not signed")
	})
}
