// Package testing provides a standardised conformance suite for property
// store implementations that satisfy the props.IPropertyStore interface.
//
// Example usage:
//
//	factory := func() props.IPropertyStore {
//		return NewMyStore()
//	}
//
//	propstesting.RunPropertyStoreTests(t, "MyStore", factory)
//
// Stores that also implement props.IConditionalStore get the conditional
// write tests; all others skip them.
package testing
