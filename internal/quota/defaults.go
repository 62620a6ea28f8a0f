package quota

// defaultGrants are the balances provisioned the first time a user's
// category is touched.
func defaultGrants() map[string]int {
	return map[string]int{
		CategoryResume:   3,
		CategorySpecial:  3,
		CategoryBehavior: 3,
	}
}
