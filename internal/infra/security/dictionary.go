package security

// commonPasswords holds the built-in dictionary of frequently used passwords.
// Entries are lowercase; candidates are normalized before lookup, so mutations
// like "Passw0rd!" and "dragon99" still resolve to their base word.
var commonPasswords = func() map[string]struct{} {
	entries := []string{
		"password", "passwort", "passw0rd", "p4ssword", "secret", "letmein",
		"welcome", "admin", "administrator", "root", "toor", "login", "guest",
		"user", "test", "demo", "changeme", "default", "access", "private",
		"qwerty", "qwertyuiop", "asdfgh", "asdfghjkl", "zxcvbn", "zxcvbnm",
		"qazwsx", "qweasd", "qweasdzxc", "1q2w3e", "1q2w3e4r", "1q2w3e4r5t",
		"1qaz2wsx", "zaq12wsx", "abc123", "abcdef", "abcd1234", "a1b2c3",
		"123456", "1234567", "12345678", "123456789", "1234567890", "111111",
		"000000", "121212", "123123", "112233", "654321", "666666", "696969",
		"777777", "888888", "987654321", "159753", "131313", "102030",
		"iloveyou", "loveyou", "lovely", "sweetheart", "princess", "sunshine",
		"rainbow", "butterfly", "flower", "angel", "angels", "forever",
		"monkey", "dragon", "tigger", "dolphin", "eagle", "falcon", "phoenix",
		"shadow", "master", "killer", "hunter", "ranger", "buster", "ninja",
		"soccer", "football", "baseball", "basketball", "hockey", "jordan",
		"superman", "batman", "starwars", "pokemon", "matrix", "gandalf",
		"michael", "jennifer", "jessica", "ashley", "amanda", "daniel",
		"robert", "thomas", "charlie", "george", "andrew", "joshua", "justin",
		"anthony", "nicole", "hannah", "maggie", "bailey", "harley", "chelsea",
		"freedom", "whatever", "trustno1", "computer", "internet", "samsung",
		"cheese", "pepper", "ginger", "cookie", "banana", "orange", "silver",
		"diamond", "summer", "winter", "spring", "autumn", "august", "friday",
		"mustang", "corvette", "ferrari", "porsche", "yamaha", "harley",
		"mercedes", "london", "austin", "dallas", "phoenix1", "chicago",
		"liverpool", "arsenal", "chelsea1", "barcelona", "rangers", "lakers",
		"hello", "hello123", "hellothere", "goodbye", "monday", "money",
		"dollar", "bitcoin", "hotdog", "iceman", "cowboy", "bigdog", "maxwell",
		"scooter", "peanut", "snoopy", "smokey", "midnight", "mountain",
		"thunder", "lightning", "hammer", "marine", "sparky", "heather",
		"welcome1", "password1", "password12", "password123", "adminadmin",
		"letmein1", "qwerty123", "iloveyou2", "michelle", "victoria",
		"alexander", "benjamin", "scorpion", "slipknot", "metallica",
		"nirvana", "blink182", "eminem",
	}
	set := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		set[entry] = struct{}{}
	}
	return set
}()

// isCommonPassword reports whether the normalized candidate is in the
// dictionary.
func isCommonPassword(candidate string) bool {
	_, ok := commonPasswords[candidate]
	return ok
}
