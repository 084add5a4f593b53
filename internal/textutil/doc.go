// Package textutil sanitizes user-supplied names before they touch the
// filesystem.
package textutil
