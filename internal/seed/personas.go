package seed

// Persona: синтетический лид для наполнения CRM.
type Persona struct {
	FirstName    string
	LastName     string
	Archetype    string
	ArchetypeTag string
	Phone        string
	City         string
	State        string
	Budget       int64
	Note         string
}

func (p Persona) DisplayName() string {
	return p.FirstName + " " + p.LastName
}

var batches = map[int][]Persona{
	1: {
		{"Maya", "Rivers", "First-Time Urban Condo Buyer", "first-time-buyer", "202-555-0101", "Denver", "CO", 525000,
			"Wants a walkable neighborhood, low HOA, and strong resale potential."},
		{"Derrick", "Coleman", "Move-Up Suburban Family", "move-up-family", "202-555-0102", "Centennial", "CO", 875000,
			"Prioritizes school district, yard size, and commute under 35 minutes."},
		{"Elena", "Park", "Luxury Relocation Executive", "luxury-relocation", "202-555-0103", "Cherry Hills Village", "CO", 2400000,
			"Relocating for work, needs discreet off-market options and turnkey condition."},
		{"Howard", "Nash", "Downsizing Empty-Nester Seller", "downsizing-seller", "202-555-0104", "Littleton", "CO", 780000,
			"Selling larger home and wants condo living near healthcare and dining."},
		{"Priya", "Malhotra", "Cash-Flow Focused Investor", "investor", "202-555-0105", "Aurora", "CO", 980000,
			"Analyzes rent comps, cap rate, and renovation timeline before writing offers."},
	},
	2: {
		{"Noah", "Bennett", "Military VA Relocation Buyer", "military-relocation", "202-555-0111", "Colorado Springs", "CO", 610000,
			"Needs VA-eligible properties close to base and strong school options."},
		{"Sofia", "Alvarez", "Remote Worker Lifestyle Buyer", "remote-worker", "202-555-0112", "Boulder", "CO", 1100000,
			"Prioritizes home office setup, mountain access, and fiber internet."},
		{"Marcus", "Liu", "Fix-and-Flip Entrepreneur", "fix-and-flip", "202-555-0113", "Lakewood", "CO", 690000,
			"Targets cosmetic rehab properties with 6-month resale windows."},
		{"Linda", "Carver", "Pre-Retirement Downsizer", "pre-retirement", "202-555-0114", "Arvada", "CO", 720000,
			"Wants one-level living, low maintenance, and space for visiting family."},
		{"Jamal", "Washington", "Out-of-State Landlord Investor", "landlord-investor", "202-555-0115", "Thornton", "CO", 1350000,
			"Evaluates cash flow, vacancy rates, and professional management options."},
	},
}

// NormalizeBatch номер меньше 1 считается первым.
func NormalizeBatch(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// PersonasFor возвращает копию пачки; неизвестный номер откатывается на пачку 1.
func PersonasFor(batch int) []Persona {
	src, ok := batches[batch]
	if !ok {
		src = batches[1]
	}
	out := make([]Persona, len(src))
	copy(out, src)
	return out
}
