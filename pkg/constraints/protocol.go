package constraints

type Action int32

const (
	DELETE Action = 0
	PUT    Action = 1
)

// Caller roles carried in the JWT role claim.
const (
	RoleManager   = "manager"
	RoleDeveloper = "developer"
)

// ProductionEnv is the only environment the risk gate engages for.
const ProductionEnv = "Production"

// DefaultEnvironments are seeded once at startup.
var DefaultEnvironments = []string{"Development", "Staging", ProductionEnv}
