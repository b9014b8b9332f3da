package schema

// Check validates value against the type string. An empty type string means
// no declared shape and always passes.
func Check(typeStr string, value any) error {
	if typeStr == "" {
		return nil
	}
	typ, err := ParseType(typeStr)
	if err != nil {
		return err
	}
	return typ.Validate(value)
}
