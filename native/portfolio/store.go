package portfolio

import (
	"fmt"
	"math/big"

	"creditvault/crypto"
)

type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Snapshot() int
	RevertToSnapshot(id int)
}

type vaultRecord struct {
	Address                  string
	Asset                    string
	Name                     string
	Symbol                   string
	AssetDecimals            uint8
	ShareDecimals            uint8
	VirtualLiquidity         *big.Int
	TotalSupply              *big.Int
	MaxSize                  *big.Int
	EndDate                  uint64
	LastProtocolFeeRate      uint32
	LastManagerFeeRate       uint32
	LastFeeUpdate            uint64
	UnpaidProtocolFee        *big.Int
	UnpaidManagerFee         *big.Int
	ManagerFeeBeneficiary    string
	HighestInstrumentEndDate uint64
}

// Store persists vault records, share balances, allowances and instrument
// bookkeeping in a journaled key-value state.
type Store struct {
	kv kvStore
}

// NewStore wraps kv (typically *state.Manager).
func NewStore(kv kvStore) *Store {
	return &Store{kv: kv}
}

func vaultKey(vault crypto.Address) []byte {
	return append([]byte("portfolio/vault/"), vault.Bytes()...)
}

func sharesKey(vault, holder crypto.Address) []byte {
	key := append([]byte("portfolio/shares/"), vault.Bytes()...)
	return append(key, holder.Bytes()...)
}

func allowanceKey(vault, owner, spender crypto.Address) []byte {
	key := append([]byte("portfolio/allowance/"), vault.Bytes()...)
	key = append(key, owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

func instrumentAddedKey(vault crypto.Address, ref InstrumentRef) []byte {
	key := append([]byte("portfolio/instrument/"), vault.Bytes()...)
	return append(key, []byte(ref.String())...)
}

func instrumentAllowedKey(vault crypto.Address, kind string) []byte {
	key := append([]byte("portfolio/allowed/"), vault.Bytes()...)
	return append(key, []byte(kind)...)
}

func (s *Store) Snapshot() int { return s.kv.Snapshot() }

func (s *Store) RevertToSnapshot(id int) { s.kv.RevertToSnapshot(id) }

// VaultGet loads the vault stored under addr.
func (s *Store) VaultGet(addr crypto.Address) (*Vault, bool, error) {
	var rec vaultRecord
	ok, err := s.kv.KVGet(vaultKey(addr), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	address, err := decodeAddress(rec.Address)
	if err != nil {
		return nil, false, err
	}
	beneficiary, err := decodeAddress(rec.ManagerFeeBeneficiary)
	if err != nil {
		return nil, false, err
	}
	return &Vault{
		Address:                  address,
		Asset:                    rec.Asset,
		Name:                     rec.Name,
		Symbol:                   rec.Symbol,
		AssetDecimals:            rec.AssetDecimals,
		ShareDecimals:            rec.ShareDecimals,
		VirtualLiquidity:         rec.VirtualLiquidity,
		TotalSupply:              rec.TotalSupply,
		MaxSize:                  rec.MaxSize,
		EndDate:                  int64(rec.EndDate),
		LastProtocolFeeRate:      rec.LastProtocolFeeRate,
		LastManagerFeeRate:       rec.LastManagerFeeRate,
		LastFeeUpdate:            int64(rec.LastFeeUpdate),
		UnpaidProtocolFee:        rec.UnpaidProtocolFee,
		UnpaidManagerFee:         rec.UnpaidManagerFee,
		ManagerFeeBeneficiary:    beneficiary,
		HighestInstrumentEndDate: int64(rec.HighestInstrumentEndDate),
	}, true, nil
}

// VaultPut stores v under its address.
func (s *Store) VaultPut(v *Vault) error {
	if v == nil {
		return fmt.Errorf("portfolio: nil vault")
	}
	rec := &vaultRecord{
		Address:                  v.Address.String(),
		Asset:                    v.Asset,
		Name:                     v.Name,
		Symbol:                   v.Symbol,
		AssetDecimals:            v.AssetDecimals,
		ShareDecimals:            v.ShareDecimals,
		VirtualLiquidity:         nonNil(v.VirtualLiquidity),
		TotalSupply:              nonNil(v.TotalSupply),
		MaxSize:                  nonNil(v.MaxSize),
		EndDate:                  uint64(v.EndDate),
		LastProtocolFeeRate:      v.LastProtocolFeeRate,
		LastManagerFeeRate:       v.LastManagerFeeRate,
		LastFeeUpdate:            uint64(v.LastFeeUpdate),
		UnpaidProtocolFee:        nonNil(v.UnpaidProtocolFee),
		UnpaidManagerFee:         nonNil(v.UnpaidManagerFee),
		ManagerFeeBeneficiary:    v.ManagerFeeBeneficiary.String(),
		HighestInstrumentEndDate: uint64(v.HighestInstrumentEndDate),
	}
	return s.kv.KVPut(vaultKey(v.Address), rec)
}

func (s *Store) getAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := s.kv.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (s *Store) putAmount(key []byte, amount *big.Int) error {
	if isZero(amount) {
		return s.kv.KVDelete(key)
	}
	return s.kv.KVPut(key, amount)
}

// SharesGet returns the share balance of holder in vault.
func (s *Store) SharesGet(vault, holder crypto.Address) (*big.Int, error) {
	return s.getAmount(sharesKey(vault, holder))
}

// SharesPut sets the share balance of holder in vault.
func (s *Store) SharesPut(vault, holder crypto.Address, amount *big.Int) error {
	return s.putAmount(sharesKey(vault, holder), amount)
}

// AllowanceGet returns how many of owner's shares spender may move.
func (s *Store) AllowanceGet(vault, owner, spender crypto.Address) (*big.Int, error) {
	return s.getAmount(allowanceKey(vault, owner, spender))
}

func (s *Store) AllowancePut(vault, owner, spender crypto.Address, amount *big.Int) error {
	return s.putAmount(allowanceKey(vault, owner, spender), amount)
}

func (s *Store) getFlag(key []byte) (bool, error) {
	var flag bool
	if _, err := s.kv.KVGet(key, &flag); err != nil {
		return false, err
	}
	return flag, nil
}

func (s *Store) putFlag(key []byte, flag bool) error {
	if !flag {
		return s.kv.KVDelete(key)
	}
	return s.kv.KVPut(key, true)
}

// InstrumentAdded reports whether ref was issued by vault.
func (s *Store) InstrumentAdded(vault crypto.Address, ref InstrumentRef) (bool, error) {
	return s.getFlag(instrumentAddedKey(vault, ref))
}

func (s *Store) SetInstrumentAdded(vault crypto.Address, ref InstrumentRef, added bool) error {
	return s.putFlag(instrumentAddedKey(vault, ref), added)
}

// InstrumentAllowed reports whether vault may issue instruments of kind.
func (s *Store) InstrumentAllowed(vault crypto.Address, kind string) (bool, error) {
	return s.getFlag(instrumentAllowedKey(vault, kind))
}

func (s *Store) SetInstrumentAllowed(vault crypto.Address, kind string, allowed bool) error {
	return s.putFlag(instrumentAllowedKey(vault, kind), allowed)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func decodeAddress(value string) (crypto.Address, error) {
	if value == "" {
		return crypto.Address{}, nil
	}
	return crypto.DecodeAddress(value)
}
