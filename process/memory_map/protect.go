package memory_map

// Windows page protection constants (winnt.h)
const (
	PageNoAccess         = 0x01
	PageReadOnly         = 0x02
	PageReadWrite        = 0x04
	PageWriteCopy        = 0x08
	PageExecute          = 0x10
	PageExecuteRead      = 0x20
	PageExecuteReadWrite = 0x40
	PageExecuteWriteCopy = 0x80
	PageGuard            = 0x100
)

// ProtectToPerms translates a Windows page protection into maps notation
func ProtectToPerms(protect uint32) string {
	if protect&PageGuard != 0 {
		return PermsNone
	}

	switch protect &^ 0x700 {
	case PageReadOnly:
		return "r--p"
	case PageReadWrite:
		return PermsReadWrite
	case PageWriteCopy:
		return PermsReadWrite
	case PageExecute:
		return "--xp"
	case PageExecuteRead:
		return PermsReadExec
	case PageExecuteReadWrite:
		return "rwxp"
	case PageExecuteWriteCopy:
		return "rwxp"
	default:
		return PermsNone
	}
}

// PermsToProtect is the inverse of ProtectToPerms for the protections remote regions use
func PermsToProtect(perms string) uint32 {
	r, w, x := IsReadablePerms(perms), IsWritablePerms(perms), IsExecutablePerms(perms)
	switch {
	case x && w:
		return PageExecuteReadWrite
	case x && r:
		return PageExecuteRead
	case x:
		return PageExecute
	case w:
		return PageReadWrite
	case r:
		return PageReadOnly
	default:
		return PageNoAccess
	}
}
