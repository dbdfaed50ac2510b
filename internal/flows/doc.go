// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunSetRole, RunRequestPasswordReset, RunSignOut, etc.)
// accepts a typed dependency struct of function fields and returns results
// without side effects beyond those dependencies. Roles travel as the engine's
// uint8 codes so this package never imports the root package.
//
// Flow functions coordinate calls to stores, the token codec, the mailer, the
// audit dispatcher and metrics. They do not own any of these resources;
// ownership stays with the Engine.
package flows
