// Package processing holds the sensor-side data path of a ToF node: choosing
// an area of the distance matrix, reducing it to the value(s) sent on the
// bus and debouncing the threshold status.
package processing
