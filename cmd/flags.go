////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

// This is a comprehensive list of CLI flag name constants. Organized by
// subcommand, with root level CLI flags at the top of the list. Pulling flags
// using Viper should use the constants defined here.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Log flags
	logLevelFlag = "logLevel"
	logFlag      = "log"

	// Local state
	sessionFlag  = "session"
	passwordFlag = "password"
	cacheDbFlag  = "cacheDb"

	// Backends
	apiURLFlag       = "apiUrl"
	messagingURLFlag = "messagingUrl"
	paramsFlag       = "params"

	// Misc
	profileCpuFlag = "profile-cpu"

	///////////////// Chat flags //////////////////////////////////////////////
	openFlag = "open"

	///////////////// Conversations subcommand flags //////////////////////////
	pageFlag     = "page"
	pageSizeFlag = "pageSize"

	///////////////// Avatar subcommand flags /////////////////////////////////
	thumbnailSizeFlag = "thumbnailSize"
)
