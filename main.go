// Casbin MongoDB Policy Store
// Copyright (c) 2024 Multi-Model Authorization Microservice
// Licensed under the MIT License. See LICENSE file for details.

package main

import "casbin-mongodb-adapter/internal/cli"

func main() {
	cli.Execute()
}
