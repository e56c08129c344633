package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"creditvault/config"
	"creditvault/crypto"
	"creditvault/native/loans"
	"creditvault/native/loans/bullet"
	"creditvault/native/loans/fiol"
	"creditvault/native/portfolio"
	"creditvault/observability/logging"
	"creditvault/services/portfoliod"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of vault calls replayed against an
// in-memory runtime with a manual clock.
type Scenario struct {
	Start          int64           `yaml:"start"`
	ProtocolFeeBps uint32          `yaml:"protocolFeeBps"`
	Vaults         []ScenarioVault `yaml:"vaults"`
	Steps          []Step          `yaml:"steps"`
}

type ScenarioVault struct {
	Name          string   `yaml:"name"`
	Asset         string   `yaml:"asset"`
	Decimals      uint8    `yaml:"decimals"`
	MaxSize       string   `yaml:"maxSize"`
	Duration      string   `yaml:"duration"`
	ManagerFeeBps uint32   `yaml:"managerFeeBps"`
	EntryFeeBps   uint32   `yaml:"entryFeeBps"`
	Closed        bool     `yaml:"closedWithdrawals"`
	NoTransfers   bool     `yaml:"noTransfers"`
	Instruments   []string `yaml:"instruments"`
}

// Step is one action. Accounts are labels mapped onto deterministic
// addresses; amounts are whole units of the vault asset.
type Step struct {
	Action   string `yaml:"action"`
	Vault    string `yaml:"vault"`
	Account  string `yaml:"account"`
	Receiver string `yaml:"receiver"`
	Owner    string `yaml:"owner"`
	Amount   string `yaml:"amount"`
	Loan     string `yaml:"loan"`
	Kind     string `yaml:"kind"`

	Principal string `yaml:"principal"`
	TotalDebt string `yaml:"totalDebt"`
	Payment   string `yaml:"payment"`
	Periods   uint64 `yaml:"periods"`
	Duration  string `yaml:"duration"`
	Grace     string `yaml:"grace"`

	// Fails marks a step that must be rejected.
	Fails bool `yaml:"fails"`
}

const (
	actionFund            = "fund"
	actionDeposit         = "deposit"
	actionMint            = "mint"
	actionWithdraw        = "withdraw"
	actionRedeem          = "redeem"
	actionAddInstrument   = "add_instrument"
	actionAccept          = "accept"
	actionFundInstrument  = "fund_instrument"
	actionRepay           = "repay"
	actionCancel          = "cancel"
	actionDefault         = "default"
	actionUpdate          = "update_instrument"
	actionSettle          = "settle"
	actionAdvance         = "advance"
	actionReport          = "report"
	scenarioTreasuryLabel = "treasury"
	scenarioManagerLabel  = "manager"
)

var errStepSucceeded = errors.New("step expected to fail but succeeded")

func loadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if len(sc.Vaults) == 0 {
		return nil, errors.New("scenario defines no vaults")
	}
	if sc.Start == 0 {
		sc.Start = 1_700_000_000
	}
	return &sc, nil
}

func account(label string) crypto.Address {
	return crypto.LabelAddress(crypto.AccountPrefix, strings.ToLower(strings.TrimSpace(label)))
}

func (sc *Scenario) config() *config.Config {
	cfg := config.Default()
	cfg.Storage = config.Storage{Backend: config.BackendMemory}
	cfg.Keeper.Enabled = false
	cfg.Protocol = config.Protocol{FeeRateBps: sc.ProtocolFeeBps, Treasury: account(scenarioTreasuryLabel).String()}
	cfg.Vaults = cfg.Vaults[:0]
	for _, v := range sc.Vaults {
		vc := config.Vault{
			Name:               v.Name,
			Symbol:             strings.ToUpper(v.Name),
			Asset:              strings.ToUpper(v.Asset),
			AssetDecimals:      v.Decimals,
			ShareDecimals:      v.Decimals,
			MaxSize:            v.MaxSize,
			Duration:           v.Duration,
			ManagerFeeBps:      v.ManagerFeeBps,
			EntryFeeBps:        v.EntryFeeBps,
			Beneficiary:        account(scenarioManagerLabel).String(),
			WithdrawPolicy:     config.WithdrawDefault,
			Transfers:          config.TransfersAllow,
			AllowedInstruments: v.Instruments,
		}
		if vc.Duration == "" {
			vc.Duration = "365d"
		}
		if v.Closed {
			vc.WithdrawPolicy = config.WithdrawClosed
		}
		if v.NoTransfers {
			vc.Transfers = config.TransfersBlock
		}
		cfg.Vaults = append(cfg.Vaults, vc)
	}
	return cfg
}

// replayer executes a scenario and keeps the loans it created by name.
type replayer struct {
	sc   *Scenario
	rt   *portfoliod.Runtime
	now  int64
	refs map[string]portfolio.InstrumentRef
	out  io.Writer
}

func runScenario(ctx context.Context, sc *Scenario, out io.Writer) ([]portfoliod.Report, error) {
	cfg := sc.config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &replayer{sc: sc, now: sc.Start, refs: make(map[string]portfolio.InstrumentRef), out: out}
	rt, err := portfoliod.New(cfg, portfoliod.Options{
		Logger: logging.Setup("portfolioctl", "test", logging.Options{Level: "error"}),
		Now:    func() int64 { return r.now },
	})
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	r.rt = rt

	for i, step := range sc.Steps {
		err := r.apply(ctx, step)
		switch {
		case step.Fails && err == nil:
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, errStepSucceeded)
		case step.Fails:
			fmt.Fprintf(out, "step %d %s rejected: %v\n", i+1, step.Action, err)
		case err != nil:
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
	}

	reports := make([]portfoliod.Report, 0, len(sc.Vaults))
	for _, name := range rt.Vaults() {
		report, err := rt.Report(name)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *replayer) vault(step Step) (*portfoliod.Vault, error) {
	name := step.Vault
	if name == "" {
		name = r.sc.Vaults[0].Name
	}
	return r.rt.Vault(name)
}

func (r *replayer) amount(v *portfoliod.Vault, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("amount required")
	}
	return portfoliod.BaseUnits(raw, v.Decimals)
}

func receiverOr(label string, fallback crypto.Address) crypto.Address {
	if label == "" {
		return fallback
	}
	return account(label)
}

func (r *replayer) ref(name string) (portfolio.InstrumentRef, error) {
	ref, ok := r.refs[name]
	if !ok {
		return portfolio.InstrumentRef{}, fmt.Errorf("unknown loan %q", name)
	}
	return ref, nil
}

func (r *replayer) apply(ctx context.Context, step Step) error {
	if step.Action == actionAdvance {
		seconds, err := config.ParseSeconds(step.Duration)
		if err != nil {
			return err
		}
		r.now += seconds
		return nil
	}
	v, err := r.vault(step)
	if err != nil {
		return err
	}
	caller := account(step.Account)

	switch step.Action {
	case actionFund:
		amount, err := r.amount(v, step.Amount)
		if err != nil {
			return err
		}
		vault, err := v.Engine.Vault()
		if err != nil {
			return err
		}
		return r.rt.Fund(ctx, vault.Asset, caller, amount)
	case actionDeposit, actionMint, actionWithdraw, actionRedeem:
		return r.vaultFlow(ctx, v, step, caller)
	case actionAddInstrument:
		if step.Loan == "" {
			return errors.New("loan name required")
		}
		terms, err := r.terms(v, step)
		if err != nil {
			return err
		}
		ref, err := r.rt.AddInstrument(ctx, v.Name, caller, terms)
		if err != nil {
			return err
		}
		r.refs[step.Loan] = ref
		return nil
	case actionAccept:
		ref, err := r.ref(step.Loan)
		if err != nil {
			return err
		}
		return r.rt.AcceptInstrument(ctx, ref, caller)
	case actionFundInstrument:
		ref, err := r.ref(step.Loan)
		if err != nil {
			return err
		}
		return r.rt.FundInstrument(ctx, v.Name, caller, ref)
	case actionRepay:
		ref, err := r.ref(step.Loan)
		if err != nil {
			return err
		}
		amount, err := r.amount(v, step.Amount)
		if err != nil {
			return err
		}
		return r.rt.Repay(ctx, v.Name, caller, ref, amount)
	case actionCancel:
		ref, err := r.ref(step.Loan)
		if err != nil {
			return err
		}
		return r.rt.CancelInstrument(ctx, v.Name, caller, ref)
	case actionDefault:
		ref, err := r.ref(step.Loan)
		if err != nil {
			return err
		}
		return r.rt.MarkDefaulted(ctx, v.Name, caller, ref)
	case actionUpdate:
		ref, err := r.ref(step.Loan)
		if err != nil {
			return err
		}
		grace, err := config.ParseSeconds(step.Grace)
		if err != nil {
			return err
		}
		return r.rt.UpdateInstrument(ctx, v.Name, caller, ref, grace)
	case actionSettle:
		return r.rt.SettleFees(ctx, v.Name)
	case actionReport:
		report, err := r.rt.Report(v.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "t=%d %s total_assets=%s liquidity=%s supply=%s price=%s\n",
			r.now, report.Vault, report.TotalAssets, report.Liquidity, report.TotalSupply, report.SharePrice)
		return nil
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

func (r *replayer) vaultFlow(ctx context.Context, v *portfoliod.Vault, step Step, caller crypto.Address) error {
	amount, err := r.amount(v, step.Amount)
	if err != nil {
		return err
	}
	receiver := receiverOr(step.Receiver, caller)
	owner := receiverOr(step.Owner, caller)
	switch step.Action {
	case actionDeposit:
		_, err = r.rt.Deposit(ctx, v.Name, caller, amount, receiver)
	case actionMint:
		_, err = r.rt.Mint(ctx, v.Name, caller, amount, receiver)
	case actionWithdraw:
		_, err = r.rt.Withdraw(ctx, v.Name, caller, amount, receiver, owner)
	case actionRedeem:
		_, err = r.rt.Redeem(ctx, v.Name, caller, amount, receiver, owner)
	}
	return err
}

func (r *replayer) terms(v *portfoliod.Vault, step Step) (loans.IssueRequest, error) {
	vault, err := v.Engine.Vault()
	if err != nil {
		return nil, err
	}
	principal, err := r.amount(v, step.Principal)
	if err != nil {
		return nil, fmt.Errorf("principal: %w", err)
	}
	recipient := receiverOr(step.Receiver, account("borrower"))
	switch step.Kind {
	case "", bullet.Kind:
		debt, err := r.amount(v, step.TotalDebt)
		if err != nil {
			return nil, fmt.Errorf("total debt: %w", err)
		}
		duration, err := config.ParseSeconds(step.Duration)
		if err != nil {
			return nil, err
		}
		return bullet.Terms{
			Asset:     vault.Asset,
			Principal: principal,
			TotalDebt: debt,
			Duration:  duration,
			Recipient: recipient,
		}, nil
	case fiol.Kind:
		payment, err := r.amount(v, step.Payment)
		if err != nil {
			return nil, fmt.Errorf("payment: %w", err)
		}
		period, err := config.ParseSeconds(step.Duration)
		if err != nil {
			return nil, err
		}
		var grace int64
		if step.Grace != "" {
			if grace, err = config.ParseSeconds(step.Grace); err != nil {
				return nil, err
			}
		}
		return fiol.Terms{
			Asset:          vault.Asset,
			Principal:      principal,
			PeriodCount:    step.Periods,
			PeriodPayment:  payment,
			PeriodDuration: period,
			Recipient:      recipient,
			GracePeriod:    grace,
		}, nil
	default:
		return nil, fmt.Errorf("unknown instrument kind %q", step.Kind)
	}
}
