// Command scanhostd discovers eSCL/WS-Scan network scanners and drives
// scan jobs against them without a vendor driver.
package main

import "github.com/localscan/scanhost/cmd"

func main() {
	cmd.Execute()
}
