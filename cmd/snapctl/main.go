// snapctl - command line client for the oneshot capture server
package main

import "github.com/GriffinCanCode/oneshot/internal/cmd"

func main() {
	cmd.Execute()
}
