package models

// Product is the slice of the product record the transfer path consumes: the
// per-branch stock counters. A branch absent from the map holds zero units.
type Product struct {
	ID    string         `bson:"_id" json:"id"`
	Name  string         `bson:"name" json:"name"`
	Stock map[string]int `bson:"stock" json:"stock"`
}

// CounterFor returns the stock counter for the given branch, zero if absent.
func (p *Product) CounterFor(branch string) int {
	if p == nil || p.Stock == nil {
		return 0
	}
	return p.Stock[branch]
}
