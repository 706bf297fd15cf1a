package config

import (
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// LedgerConfig holds the business rules and retry policy of the ledger engine
type LedgerConfig struct {
	ActivationBonus     int64
	WalletTopUpMinimum  int64
	TopUpBonusThreshold int64
	TopUpBonusPercent   int64
	MaxAmount           int64
	MaxAttempts         uint64
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	SerialPattern       *regexp.Regexp
}

// DefaultMaxAmount caps a single credit, debit, refund or transfer, in minor units
const DefaultMaxAmount = 100_000_000

// DefaultSerialPattern accepts the serials printed on issued wristbands
const DefaultSerialPattern = `^[A-Z0-9][A-Z0-9-]{5,31}$`

func LoadLedgerConfig() (*LedgerConfig, error) {
	viper.SetDefault("ledger.activation_bonus", 500)
	viper.SetDefault("ledger.wallet_topup_minimum", 100)
	viper.SetDefault("ledger.topup_bonus_threshold", 10000)
	viper.SetDefault("ledger.topup_bonus_percent", 5)
	viper.SetDefault("ledger.max_amount", DefaultMaxAmount)
	viper.SetDefault("ledger.max_attempts", 8)
	viper.SetDefault("ledger.retry_base_delay", 5*time.Millisecond)
	viper.SetDefault("ledger.retry_max_delay", 250*time.Millisecond)
	viper.SetDefault("ledger.serial_pattern", DefaultSerialPattern)

	pattern, err := regexp.Compile(viper.GetString("ledger.serial_pattern"))
	if err != nil {
		return nil, err
	}

	return &LedgerConfig{
		ActivationBonus:     viper.GetInt64("ledger.activation_bonus"),
		WalletTopUpMinimum:  viper.GetInt64("ledger.wallet_topup_minimum"),
		TopUpBonusThreshold: viper.GetInt64("ledger.topup_bonus_threshold"),
		TopUpBonusPercent:   viper.GetInt64("ledger.topup_bonus_percent"),
		MaxAmount:           viper.GetInt64("ledger.max_amount"),
		MaxAttempts:         viper.GetUint64("ledger.max_attempts"),
		RetryBaseDelay:      viper.GetDuration("ledger.retry_base_delay"),
		RetryMaxDelay:       viper.GetDuration("ledger.retry_max_delay"),
		SerialPattern:       pattern,
	}, nil
}

// DefaultLedgerConfig returns the built-in rules without consulting viper
func DefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		ActivationBonus:     500,
		WalletTopUpMinimum:  100,
		TopUpBonusThreshold: 10000,
		TopUpBonusPercent:   5,
		MaxAmount:           DefaultMaxAmount,
		MaxAttempts:         8,
		RetryBaseDelay:      5 * time.Millisecond,
		RetryMaxDelay:       250 * time.Millisecond,
		SerialPattern:       regexp.MustCompile(DefaultSerialPattern),
	}
}
