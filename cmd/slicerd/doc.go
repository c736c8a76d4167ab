// Command slicerd runs the slicing service and provides operator commands
// for configuration, health, and job inspection.
package main
