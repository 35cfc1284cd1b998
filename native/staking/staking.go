// Package staking implements a custodial token-staking ledger: per-account
// staked balances, linear time-proportional reward accrual at a fixed annual
// rate, an inactivity-driven forfeiture policy, and a pool-solvency guard that
// gates every deposit.
package staking

// SecondsPerYear is the accrual year used by the reward arithmetic and the
// solvency guard. 365 days, no leap-year adjustment.
const SecondsPerYear int64 = 31_536_000

// percentDenominator scales whole-percentage-point APY values.
const percentDenominator = 100
