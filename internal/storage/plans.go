package storage

// Plan describes a purchasable subscription plan. The catalog is fixed in
// code; prices are in rubles.
type Plan struct {
	Name     string
	Sessions int
	Price    int
	Days     int // validity window after activation
}

// Plans is the park's subscription catalog, ordered as shown to customers.
var Plans = []Plan{
	{Name: "Разовое посещение", Sessions: 1, Price: 700, Days: 30},
	{Name: "Абонемент на 4 занятия", Sessions: 4, Price: 2400, Days: 45},
	{Name: "Абонемент на 8 занятий", Sessions: 8, Price: 4200, Days: 60},
	{Name: "Абонемент на 12 занятий", Sessions: 12, Price: 5700, Days: 90},
}

// PlanByName looks a plan up in the catalog.
func PlanByName(name string) (Plan, bool) {
	for _, p := range Plans {
		if p.Name == name {
			return p, true
		}
	}
	return Plan{}, false
}
