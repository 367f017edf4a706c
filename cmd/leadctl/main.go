// Command leadctl runs LeadScope operations from a terminal against the same
// database and services the API uses.
package main

func main() {
	Execute()
}
