package roles

// Role identifies an entry of the fixed role table.
type Role string

// Fixed role set ordered by authority.
const (
	SuperAdmin   Role = "SUPER_ADMIN"
	SystemAdmin  Role = "SYSTEM_ADMIN"
	HQManager    Role = "HQ_MANAGER"
	StoreManager Role = "STORE_MANAGER"
	StoreStaff   Role = "STORE_STAFF"
	User         Role = "USER"
)

// Definition describes a role for listings.
type Definition struct {
	Role        Role   `json:"role"`
	Description string `json:"description"`
	Level       int    `json:"level"`
	Admin       bool   `json:"admin"`
}

var definitions = []Definition{
	{Role: SuperAdmin, Description: "Platform owner with unrestricted access", Level: 6},
	{Role: SystemAdmin, Description: "System operator managing tenants and menus", Level: 5},
	{Role: HQManager, Description: "Headquarters manager across its stores", Level: 4},
	{Role: StoreManager, Description: "Manager of a single store", Level: 3},
	{Role: StoreStaff, Description: "Store employee operating POS", Level: 2},
	{Role: User, Description: "Basic authenticated user", Level: 1},
}

// adminLevel is the lowest level treated as administrative.
const adminLevel = 5
