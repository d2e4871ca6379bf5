package cmd

import (
	"fmt"
)

const banner = `
       _     _           _             _
   ___| |__ (_)_ __ __ _| | __ _  __ _| |_ ___
  / __| '_ \| | '__/ _` + "`" + ` | |/ _` + "`" + ` |/ _` + "`" + ` | __/ _ \
 | (__| | | | | | | (_| | | (_| | (_| | ||  __/
  \___|_| |_|_|_|  \__,_|_|\__, |\__,_|\__\___|
                           |___/
`

func printBanner() {
	fmt.Printf("\x1b[35m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Chiral Carbon Admission Gate - Version %s\x1b[0m\n\n", Version)
}
