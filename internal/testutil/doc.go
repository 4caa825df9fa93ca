// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing core model objects (findings, plans,
// scripted workers). They are not intended for production usage.
package testutil
