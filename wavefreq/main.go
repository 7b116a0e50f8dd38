// Command wavefreq solves frequency-domain wave problems at many frequencies.
package main

import "github.com/sarchlab/wavefreq/wavefreq/cmd"

func main() {
	cmd.Execute()
}
