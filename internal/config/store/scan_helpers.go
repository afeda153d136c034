package store

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(scanner rowScanner) (Profile, error) {
	var (
		name      string
		isDefault int
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(&name, &isDefault, &createdAt, &updatedAt); err != nil {
		return Profile{}, err
	}
	return Profile{
		Name:      name,
		IsDefault: isDefault == 1,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func scanStringPair(scanner rowScanner) (string, string, error) {
	var key, value string
	err := scanner.Scan(&key, &value)
	return key, value, err
}

func scanSavedSession(scanner rowScanner) (SavedSession, error) {
	var sess SavedSession
	err := scanner.Scan(
		&sess.SessionID,
		&sess.RelayURL,
		&sess.JoinURL,
		&sess.CreatedAt,
		&sess.ExpiresAt,
		&sess.UpdatedAt,
	)
	return sess, err
}
