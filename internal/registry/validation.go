package registry

const nameMaxLength = 50

// validName accepts letters, digits and a small punctuation set, the same
// alphabet allowed for supplier, customer and SKU descriptions.
func validName(value string) bool {
	if len(value) == 0 || len(value) > nameMaxLength {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == ' ' || r == '-' || r == '_' || r == '.' || r == ',':
		case r == '(' || r == ')' || r == '[' || r == ']':
		default:
			return false
		}
	}
	return true
}
