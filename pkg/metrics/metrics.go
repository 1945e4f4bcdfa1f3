// Package metrics holds the prometheus collectors shared by the services.
// Every constructor accepts a nil registerer and then returns a recorder whose
// methods do nothing.
package metrics

const namespace = "cartsplit"

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
