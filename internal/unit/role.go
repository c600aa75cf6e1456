package unit

// Role is a fixed logical position in the topology. At most one non-gauge
// unit occupies a role per deployment. Role names double as manifest keys.
type Role string

const (
	RoleVotingEscrowV1           Role = "VotingEscrowV1"
	RoleVotingEscrowV2           Role = "VotingEscrowV2"
	RoleMirroredVotingEscrow     Role = "MirroredVotingEscrow"
	RoleSmartWalletChecker       Role = "SmartWalletChecker"
	RoleLockCreatorChecker       Role = "LockCreatorChecker"
	RoleTreasury                 Role = "Treasury"
	RoleRewardPolicyMaker        Role = "RewardPolicyMaker"
	RoleGaugeControllerV2        Role = "GaugeControllerV2"
	RoleMinter                   Role = "Minter"
	RoleVotingEscrowDelegationV2 Role = "VotingEscrowDelegationV2"
	RoleDelegationProxy          Role = "DelegationProxy"

	// RoleGauge is the per-pool leaf role. Gauges are tracked as a list in
	// the manifest rather than under a single key.
	RoleGauge Role = "Gauge"
)

// TopologyOrder lists the single-unit roles in the order they appear in a
// manifest file.
var TopologyOrder = []Role{
	RoleVotingEscrowV1,
	RoleVotingEscrowV2,
	RoleMirroredVotingEscrow,
	RoleSmartWalletChecker,
	RoleLockCreatorChecker,
	RoleTreasury,
	RoleRewardPolicyMaker,
	RoleGaugeControllerV2,
	RoleMinter,
	RoleVotingEscrowDelegationV2,
	RoleDelegationProxy,
}

// IsTopologyRole reports whether r is one of the single-unit roles.
func IsTopologyRole(r Role) bool {
	for _, known := range TopologyOrder {
		if known == r {
			return true
		}
	}
	return false
}
