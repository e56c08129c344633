package portfolio

import (
	"math/big"

	"creditvault/crypto"
)

func (e *Engine) grossAssets(v *Vault) (*big.Int, error) {
	gross := new(big.Int).Set(nonNil(v.VirtualLiquidity))
	if e.valuation == nil {
		return gross, nil
	}
	value, err := e.valuation.CalculateValue(e.address)
	if err != nil {
		return nil, err
	}
	return gross.Add(gross, value), nil
}

// fees projects both continuous fees at the rates recorded by the last
// settlement and adds the unpaid remainders.
func (e *Engine) fees(v *Vault, gross *big.Int) (protocolFee, managerFee *big.Int, err error) {
	elapsed := e.Now() - v.LastFeeUpdate
	protocolFee, err = accrue(gross, v.LastProtocolFeeRate, elapsed)
	if err != nil {
		return nil, nil, err
	}
	managerFee, err = accrue(gross, v.LastManagerFeeRate, elapsed)
	if err != nil {
		return nil, nil, err
	}
	protocolFee.Add(protocolFee, nonNil(v.UnpaidProtocolFee))
	managerFee.Add(managerFee, nonNil(v.UnpaidManagerFee))
	return protocolFee, managerFee, nil
}

func (e *Engine) totalAssets(v *Vault) (*big.Int, error) {
	gross, err := e.grossAssets(v)
	if err != nil {
		return nil, err
	}
	protocolFee, managerFee, err := e.fees(v, gross)
	if err != nil {
		return nil, err
	}
	return floorSub(gross, new(big.Int).Add(protocolFee, managerFee)), nil
}

func (e *Engine) liquidAssets(v *Vault) (*big.Int, error) {
	gross, err := e.grossAssets(v)
	if err != nil {
		return nil, err
	}
	protocolFee, managerFee, err := e.fees(v, gross)
	if err != nil {
		return nil, err
	}
	return floorSub(nonNil(v.VirtualLiquidity), new(big.Int).Add(protocolFee, managerFee)), nil
}

// settleFees pays the protocol fee and then the manager fee out of virtual
// liquidity. Whatever cannot be paid is carried as unpaid. The rates are
// refreshed afterwards so a rate change never applies to past accrual.
func (e *Engine) settleFees(v *Vault) error {
	gross, err := e.grossAssets(v)
	if err != nil {
		return err
	}
	protocolFee, managerFee, err := e.fees(v, gross)
	if err != nil {
		return err
	}
	liquidity := new(big.Int).Set(nonNil(v.VirtualLiquidity))

	paidProtocol := minBig(protocolFee, liquidity)
	if paidProtocol.Sign() > 0 {
		treasury := e.protocolTreasury()
		if err := e.transfer(v.Asset, e.address, treasury, paidProtocol); err != nil {
			return err
		}
		liquidity.Sub(liquidity, paidProtocol)
		e.emit(NewFeePaidEvent(e.address, treasury, paidProtocol))
	}

	paidManager := minBig(managerFee, liquidity)
	if paidManager.Sign() > 0 {
		if err := e.transfer(v.Asset, e.address, v.ManagerFeeBeneficiary, paidManager); err != nil {
			return err
		}
		liquidity.Sub(liquidity, paidManager)
		e.emit(NewFeePaidEvent(e.address, v.ManagerFeeBeneficiary, paidManager))
	}

	v.VirtualLiquidity = liquidity
	v.UnpaidProtocolFee = protocolFee.Sub(protocolFee, paidProtocol)
	v.UnpaidManagerFee = managerFee.Sub(managerFee, paidManager)
	v.LastFeeUpdate = e.Now()
	v.LastProtocolFeeRate = e.protocolFeeRate()
	v.LastManagerFeeRate = e.managerFeeRate()
	return e.storeVault(v)
}

// payFee moves a one-off deposit or withdraw fee to the manager beneficiary.
func (e *Engine) payFee(v *Vault, from crypto.Address, fee *big.Int) error {
	if isZero(fee) {
		return nil
	}
	if err := e.transfer(v.Asset, from, v.ManagerFeeBeneficiary, fee); err != nil {
		return err
	}
	e.emit(NewFeePaidEvent(e.address, v.ManagerFeeBeneficiary, fee))
	return nil
}

// GetFees returns the continuous fees that would be settled now.
func (e *Engine) GetFees() (protocolFee, managerFee *big.Int, err error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, nil, err
	}
	gross, err := e.grossAssets(v)
	if err != nil {
		return nil, nil, err
	}
	return e.fees(v, gross)
}

// UpdateAndPayFee settles the continuous fees without moving capital.
func (e *Engine) UpdateAndPayFee() error {
	return e.atomic(func() error {
		if err := e.guardPaused(); err != nil {
			return err
		}
		v, err := e.loadVault()
		if err != nil {
			return err
		}
		return e.settleFees(v)
	})
}
