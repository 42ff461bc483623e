package custody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlane/utr/pkg/asset"
	"github.com/chainlane/utr/pkg/token"
)

const routerAddr = "0xrouter"

func newFixture(t *testing.T) (*token.World, *Custody) {
	t.Helper()
	w := token.NewWorld()
	return w, New(w, routerAddr)
}

func TestReadNative(t *testing.T) {
	w, c := newFixture(t)
	require.NoError(t, w.MintNative("alice", 77))

	got, err := c.Read("alice", asset.Native())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), got)
}

func TestReadFungible(t *testing.T) {
	w, c := newFixture(t)
	gold, err := token.NewFungibleToken(w, "0xgold", "GOLD")
	require.NoError(t, err)
	require.NoError(t, gold.Mint("alice", 55))

	got, err := c.Read("alice", asset.Fungible("0xgold"))
	require.NoError(t, err)
	assert.Equal(t, uint64(55), got)
}

func TestReadNonFungible(t *testing.T) {
	w, c := newFixture(t)
	art, err := token.NewNFTContract(w, "0xart", "ART")
	require.NoError(t, err)
	require.NoError(t, art.Mint("alice", 1))
	require.NoError(t, art.Mint("alice", 2))
	require.NoError(t, art.Mint("bob", 3))

	// Aggregate sentinel counts all units owned.
	got, err := c.Read("alice", asset.NonFungible("0xart", asset.AggregateBalance))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got)

	// Specific unit reads 1 for the owner, 0 for anyone else.
	got, err = c.Read("alice", asset.NonFungible("0xart", 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got)

	got, err = c.Read("bob", asset.NonFungible("0xart", 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)

	// A failed ownership probe reads as zero, not as an error.
	got, err = c.Read("alice", asset.NonFungible("0xart", 999))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)
}

func TestReadSemiFungible(t *testing.T) {
	w, c := newFixture(t)
	shards, err := token.NewSFTContract(w, "0xshards", "SHARD")
	require.NoError(t, err)
	require.NoError(t, shards.Mint("alice", 9, 30))

	got, err := c.Read("alice", asset.SemiFungible("0xshards", 9))
	require.NoError(t, err)
	assert.Equal(t, uint64(30), got)
}

func TestReadUnsupportedClass(t *testing.T) {
	_, c := newFixture(t)
	_, err := c.Read("alice", asset.Ref{Class: asset.Class(7), Contract: "0xmystery"})
	assert.ErrorIs(t, err, asset.ErrUnsupportedClass)
}

func TestMoveDispatch(t *testing.T) {
	w, c := newFixture(t)
	require.NoError(t, w.MintNative("alice", 100))

	gold, err := token.NewFungibleToken(w, "0xgold", "GOLD")
	require.NoError(t, err)
	require.NoError(t, gold.Mint("alice", 100))
	gold.Approve("alice", routerAddr, 100)

	art, err := token.NewNFTContract(w, "0xart", "ART")
	require.NoError(t, err)
	require.NoError(t, art.Mint("alice", 4))
	art.SetApprovalForAll("alice", routerAddr, true)

	shards, err := token.NewSFTContract(w, "0xshards", "SHARD")
	require.NoError(t, err)
	require.NoError(t, shards.Mint("alice", 2, 50))
	shards.SetApprovalForAll("alice", routerAddr, true)

	require.NoError(t, c.Move("alice", "bob", asset.Native(), 10))
	assert.Equal(t, uint64(10), w.NativeBalance("bob"))

	require.NoError(t, c.Move("alice", "bob", asset.Fungible("0xgold"), 20))
	assert.Equal(t, uint64(20), gold.BalanceOf("bob"))

	require.NoError(t, c.Move("alice", "bob", asset.NonFungible("0xart", 4), 1))
	owner, err := art.OwnerOf(4)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)

	require.NoError(t, c.Move("alice", "bob", asset.SemiFungible("0xshards", 2), 15))
	assert.Equal(t, uint64(15), shards.BalanceOf("bob", 2))
}

func TestMoveRequiresApproval(t *testing.T) {
	w, c := newFixture(t)
	gold, err := token.NewFungibleToken(w, "0xgold", "GOLD")
	require.NoError(t, err)
	require.NoError(t, gold.Mint("alice", 100))

	err = c.Move("alice", "bob", asset.Fungible("0xgold"), 20)
	assert.ErrorIs(t, err, token.ErrNotAuthorized)
}

func TestMoveAggregateBalanceRejected(t *testing.T) {
	w, c := newFixture(t)
	_, err := token.NewNFTContract(w, "0xart", "ART")
	require.NoError(t, err)

	err = c.Move("alice", "bob", asset.NonFungible("0xart", asset.AggregateBalance), 1)
	assert.ErrorIs(t, err, asset.ErrInvalidAssetRef)
}

func TestMoveUnknownContract(t *testing.T) {
	_, c := newFixture(t)
	err := c.Move("alice", "bob", asset.Fungible("0xmissing"), 1)
	assert.ErrorIs(t, err, token.ErrUnknownContract)
}

func TestMoveWrongContractKind(t *testing.T) {
	w, c := newFixture(t)
	_, err := token.NewNFTContract(w, "0xart", "ART")
	require.NoError(t, err)

	err = c.Move("alice", "bob", asset.Fungible("0xart"), 1)
	assert.ErrorIs(t, err, asset.ErrInvalidAssetRef)
}

func TestRegisterCustomAdapter(t *testing.T) {
	_, c := newFixture(t)
	custom := asset.Class(42)
	c.Register(custom, &stubAdapter{balance: 7})

	got, err := c.Read("anyone", asset.Ref{Class: custom, Contract: "0xcustom"})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}

type stubAdapter struct {
	balance uint64
}

func (s *stubAdapter) Read(string, asset.Ref) (uint64, error)       { return s.balance, nil }
func (s *stubAdapter) Move(string, string, asset.Ref, uint64) error { return nil }
