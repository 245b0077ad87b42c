// Package util provides small generic containers shared by the server and
// the script runtime
package util
