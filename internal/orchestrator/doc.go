// Package orchestrator deploys the vote-escrow / gauge topology and keeps
// its manifest current.
//
// Two entry points exist. FullDeploy builds every unit in dependency order:
//
//	escrow (checkers + VotingEscrowV2, or a supplied v1 escrow)
//	  -> MirroredVotingEscrow
//	  -> checker read-back from the escrow
//	  -> Treasury, RewardPolicyMaker, GaugeControllerV2, Minter,
//	     VotingEscrowDelegationV2, DelegationProxy
//	  -> one LiquidityGaugeV4_1 per pool
//
// ExtendWithGauge adds a single gauge to a recorded topology.
//
// The manifest is an accumulator value threaded through the steps and
// persisted once at the end. Execution is strictly sequential: each step
// waits for its construction to be confirmed before the next begins, so
// manifest ordering is deterministic and a failure is attributable to
// exactly one step.
//
// There is no rollback and no automatic retry. A failed run leaves its
// earlier units live; they are listed in the Result and in the run journal
// so an operator can reconcile them.
package orchestrator
