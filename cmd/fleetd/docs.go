package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           fleetd API
// @version         1.0
// @description     OpenAI-compatible gateway over a self-hosted inference fleet: container lifecycle, health-aware routing and bounded agent runs.
//
// @contact.name   fleetd maintainers
// @contact.url    https://github.com/your-org/fleetd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
