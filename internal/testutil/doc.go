// Package testutil holds network fixtures shared by the package tests.
package testutil
