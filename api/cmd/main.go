package main

import (
	api "SecureAccess/api"
)

func main() {
	api.Run()
}
