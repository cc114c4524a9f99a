//go:build !freenect2

package freenect2

// Open returns the native driver.
func Open() (Driver, error) {
	return nil, ErrUnavailable
}
